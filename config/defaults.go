package config

// defaults holds the built-in values for every recognized key, used
// when a key is absent from both the config file and CLI overrides.
var defaults = map[string]string{
	"tsdb.page.count":            "32768",
	"tsdb.page.size":             "4k",
	"tsdb.compressor.version":    "1",
	"tsdb.timestamp.resolution.ms": "false",
	"tsdb.data.dir":              "",
	"tsdb.rollup.interval":       "1m",
	"tsdb.self.meter.enabled":    "false",
	"http.listener.count":        "1",
	"http.responders.per.listener": "1",
	"tcp.listener.count":         "1",
	"tcp.responders.per.listener": "1",
	"cluster.servers":            "",
	"config.reload.enabled":      "false",
	"config.reload.frequency":    "30s",
}
