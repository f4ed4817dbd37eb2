package observability

import "github.com/sirupsen/logrus"

// SetupLogging configures the logrus standard logger for the given
// environment: JSON lines in production, human readable text elsewhere.
func SetupLogging(appEnv string) {
	if appEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetLevel(logrus.DebugLevel)
}
