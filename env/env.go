package env

import "flag"

type Args struct {
	Config  *string
	Test    *bool
	NoSleep *bool
	Verbose *bool
	Moist   *bool
}

// ParseArgs registers the command line flags and parses them.
func ParseArgs() Args {
	a := Args{
		Config:  flag.String("config", "/etc/soilmonitor.yaml", "path to the yaml config file"),
		Test:    flag.Bool("test", false, "test mode, simulated sensors and power management"),
		NoSleep: flag.Bool("nosleep", false, "never suspend, resample continuously"),
		Verbose: flag.Bool("verbose", false, "debug logging"),
		Moist:   flag.Bool("moist", false, "log every raw moisture read"),
	}
	flag.Parse()
	return a
}
