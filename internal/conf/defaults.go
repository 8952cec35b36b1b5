// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "parrot-tester")
	v.SetDefault("main.log.defaultlevel", "info")
	v.SetDefault("main.log.timezone", "Local")
	v.SetDefault("main.log.console.enabled", true)
	v.SetDefault("main.log.console.level", "info")
	v.SetDefault("main.log.fileoutput.enabled", false)
	v.SetDefault("main.log.fileoutput.path", "logs/parrot-tester.log")
	v.SetDefault("main.log.fileoutput.level", "debug")

	v.SetDefault("capture.timeout", 350*time.Millisecond)
	v.SetDefault("capture.maxframes", 50)
	v.SetDefault("capture.maxhistory", 0)
	v.SetDefault("capture.buffersize", 5)
	v.SetDefault("capture.bufferwindow", 300*time.Millisecond)

	v.SetDefault("detectionlog.pagesize", 20)

	v.SetDefault("detection.doublepoppause", false)
	v.SetDefault("detection.doublepopsentinel", "pop")

	v.SetDefault("init.retries", 10)
	v.SetDefault("init.delay", 500*time.Millisecond)
	v.SetDefault("init.registryretries", 10)

	v.SetDefault("patterns.path", "patterns.json")

	v.SetDefault("display.highlightduration", 300*time.Millisecond)
	v.SetDefault("display.tab", "frames")

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "127.0.0.1:8089")
	v.SetDefault("webserver.debug", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "parrot-tester/captures")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.ratelimit", 5.0)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("replay.path", "")
	v.SetDefault("replay.speed", 1.0)
	v.SetDefault("replay.loop", false)
}
