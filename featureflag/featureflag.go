package featureflag

// FeatureFlag is a lookup map for features that are enabled or disabled.
// A nil FeatureFlag has no flag set.
type FeatureFlag map[Flag]struct{}

// New returns feature flags initialized with a list of flags. Empty entries
// are ignored.
func New(flags []string) FeatureFlag {
	featureFlag := make(FeatureFlag)
	for _, f := range flags {
		if f == "" {
			continue
		}
		featureFlag[Flag(f)] = struct{}{}
	}
	return featureFlag
}

// Has reports whether flag is set.
func (f FeatureFlag) Has(flag Flag) bool {
	_, ok := f[flag]
	return ok
}

// IfSet runs function `do` if flag is set in the feature flags.
func (f FeatureFlag) IfSet(flag Flag, do func()) {
	if !f.Has(flag) {
		return
	}
	do()
}

// IfNotSet runs function `do` if flag is not set in the feature flags.
func (f FeatureFlag) IfNotSet(flag Flag, do func()) {
	if f.Has(flag) {
		return
	}
	do()
}

// List returns the flags that are set.
func (f FeatureFlag) List() []string {
	flags := make([]string, 0, len(f))
	for flag := range f {
		flags = append(flags, string(flag))
	}
	return flags
}
