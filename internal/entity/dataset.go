package entity

// Flag names one of the synchronization flags of a dataset record.
// The values double as storage column/field names.
type Flag string

const (
	FlagNew      Flag = "new"
	FlagModified Flag = "modified"
	FlagStale    Flag = "stale"
	FlagError    Flag = "error"
)

var Flags = []Flag{FlagNew, FlagModified, FlagStale, FlagError}

// Status holds the synchronization flags of a dataset record.
type Status struct {
	New      bool `yaml:"new"`
	Modified bool `yaml:"modified"`
	Stale    bool `yaml:"stale"`
	Error    bool `yaml:"error"`
}

// Settled reports whether the record has no outstanding work.
func (s Status) Settled() bool {
	return !s.New && !s.Modified && !s.Stale && !s.Error
}

func (s Status) Get(f Flag) bool {
	switch f {
	case FlagNew:
		return s.New
	case FlagModified:
		return s.Modified
	case FlagStale:
		return s.Stale
	case FlagError:
		return s.Error
	}

	return false
}

// Apply returns a copy of s with the flags of u set.
func (s Status) Apply(u StatusUpdate) Status {
	for f, v := range u {
		switch f {
		case FlagNew:
			s.New = v
		case FlagModified:
			s.Modified = v
		case FlagStale:
			s.Stale = v
		case FlagError:
			s.Error = v
		}
	}

	return s
}

// StatusUpdate sets exactly the flags it contains. Flags not present are left untouched.
type StatusUpdate map[Flag]bool

// Settle clears every flag after a successful download.
func Settle() StatusUpdate {
	return StatusUpdate{
		FlagNew:      false,
		FlagModified: false,
		FlagStale:    false,
		FlagError:    false,
	}
}

// Fail marks the last download attempt as failed and keeps the other flags.
func Fail() StatusUpdate {
	return StatusUpdate{FlagError: true}
}

// Dataset is one remote dataset mirrored to the local data directory.
type Dataset struct {
	ID     string `yaml:"id"`  // Stable identifier, also the local file name
	URL    string `yaml:"url"` // Source location
	Status `yaml:",inline"`
}
