package usbresolver

// Match reports whether the device satisfies this rule and, if so, by which
// method. VID and PID must always match; beyond that the priority is fixed:
// an exact serial match wins over an exact port-path match, and a rule that
// specifies neither serial nor port path matches on VID/PID alone.
func (r DeviceRule) Match(dev RawDeviceInfo) (MatchMethod, bool) {
	if r.VID != dev.VID || r.PID != dev.PID {
		return 0, false
	}

	if r.Serial != "" && dev.Serial != "" && r.Serial == dev.Serial {
		return MatchSerial, true
	}

	if r.PortPath != "" && r.PortPath == dev.PortPath {
		return MatchPortPath, true
	}

	if r.Serial == "" && r.PortPath == "" {
		return MatchVidPid, true
	}

	return 0, false
}

// MatchDevice binds a raw device to the best rule in the set. When several
// rules match the same device the winner is chosen deterministically: the
// strongest match method first, then rule declaration order. A device that
// matches no rule is not an error; the second return value is false.
func MatchDevice(rules []DeviceRule, dev RawDeviceInfo) (ResolvedDevice, bool) {
	best := -1
	var bestMethod MatchMethod

	for i, rule := range rules {
		method, ok := rule.Match(dev)
		if !ok {
			continue
		}
		if best < 0 || method < bestMethod {
			best = i
			bestMethod = method
		}
	}

	if best < 0 {
		return ResolvedDevice{}, false
	}

	return ResolvedDevice{
		Role:        rules[best].Role,
		Device:      dev,
		MatchMethod: bestMethod,
	}, true
}

// ValidateRules checks a rule set for the invariants the monitor relies on:
// non-empty roles, unique roles, and a usable identity per rule.
func ValidateRules(rules []DeviceRule) error {
	if len(rules) == 0 {
		return ErrNoRules
	}

	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.Role == "" {
			return ErrInvalidRule
		}
		if _, dup := seen[rule.Role]; dup {
			return ErrDuplicateRole
		}
		seen[rule.Role] = struct{}{}

		// A rule must at least pin down a vendor/product pair.
		if rule.VID == 0 && rule.PID == 0 {
			return ErrInvalidRule
		}
	}

	return nil
}
