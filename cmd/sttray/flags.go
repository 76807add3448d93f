package main

import "time"

// RunFlags control the long-running instance.
type RunFlags struct {
	Headless bool
}

// ClientFlags select the bridge a client command talks to. An empty APIUrl
// is derived from the configuration's server section.
type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type StatusFlags struct {
	Detailed bool
	JSON     bool
}
