// Package config reads the docanalysis configuration file.
//
// The file is TOML. Every key is optional: Load starts from Default and
// overlays whatever the file sets, and a missing file yields the defaults.
// Durations are written as Go duration strings ("2s", "15m").
//
//	data_dir = "/var/lib/docanalysis"
//
//	[provider]
//	embedding_host = "http://localhost:11434"
//	embedding_model = "embeddinggemma"
//	analyzer_model = "gpt-4o-mini"
//
//	[pipeline]
//	workers = 4
//	retry_base_delay = "2s"
//	daily_cost_limit = 25.0
//
// The decoded Config is mapped onto the component configurations with AI
// and Pipeline. API keys are normally left out of the file; the CLI fills
// them from the environment.
package config
