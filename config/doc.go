// Package config defines the YAML configuration for the plancache engine.
//
// A config file looks like:
//
//	version: "1.0.0"
//	remote:
//	  base_url: https://api.dailyplanner.app
//	  request_timeout: 10s
//	cache:
//	  max_entries: 500
//	  collections:
//	    goals: 24h
//	    habits: 12h
//	    habitLogs: 5m
//	    timeBlocks: 5m
//	    categories: 24h
//	    monthlyData: 30m
//	    actionPlans: 30m
//	queue:
//	  max_attempts: 5
//	  drain_workers: 4
//	  storage_path: /var/lib/plancache/queue
//	  retry:
//	    initial_delay: 500ms
//	    max_delay: 30s
//	    multiplier: 2.0
//	connectivity:
//	  probe_interval: 15s
//	  probe_path: /health
//	metrics:
//	  enabled: true
//	  port: 9090
//	logging:
//	  level: info
//	  format: json
//
// Unset fields take defaults; fields that are present but wrong fail
// validation with a classified configuration error. The per-collection TTL
// table is deliberately closed: a collection missing from it has no TTL
// mapping and the TTL policy rejects it instead of inventing a default.
package config
