// Package config loads typebus runtime settings.
//
// Settings come from three layers, later layers overriding earlier ones:
//
//  1. built-in defaults (Default)
//  2. a configuration file, TOML or YAML chosen by extension
//  3. environment variables prefixed with TYPEBUS_
//
// Environment variables map onto settings by section and key, for example
// TYPEBUS_POOL_QUEUE_SIZE sets pool.queue_size.
//
// # Live Reload
//
// Watcher follows a configuration file with fsnotify and hands every
// successfully reloaded Config to a callback:
//
//	w, err := config.NewWatcher(path, func(cfg config.Config) {
//	    logger.SetLevel(logging.ParseLevel(cfg.Log.Level))
//	})
//	defer w.Close()
package config
