/*
Package config loads schedulerd's YAML configuration file into a
typed Config, the same way warren loads process configuration from
flags and yaml-shaped structs. Default() supplies every field's
documented default so a missing or partial file still produces a
runnable configuration; Load merges a file's contents onto those
defaults and validates the result.
*/
package config
