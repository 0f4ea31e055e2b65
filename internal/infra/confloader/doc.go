// Package confloader loads configuration with koanf and watches the config
// file with fsnotify.
//
// Sources, lowest to highest priority:
//
//  1. Defaults already present in the target struct
//  2. YAML configuration file
//  3. TALORIX_ environment variables
//  4. Explicit maps (LoadMap), used for command-line overrides
package confloader
