package index

import (
	"github.com/parrotgw/parrot/internal/fingerprint"
)

func temperatureBucket(s string) fingerprint.TemperatureBucket {
	return fingerprint.TemperatureBucket(s)
}

func mode(s string) fingerprint.Mode {
	return fingerprint.Mode(s)
}
