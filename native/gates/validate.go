package gates

import "qugate/crypto"

func validateRecipientCount(count uint8) Status {
	if count == 0 || count > MaxRecipients {
		return StatusInvalidRecipientCount
	}
	return StatusSuccess
}

func validateSenderCount(count uint8) Status {
	if count > MaxRecipients {
		return StatusInvalidSenderCount
	}
	return StatusSuccess
}

// validateRatios checks the first count Split weights: each at most MaxRatio
// and a non-zero sum.
func validateRatios(ratios [MaxRecipients]uint64, count uint8) Status {
	var total uint64
	for i := 0; i < int(count) && i < MaxRecipients; i++ {
		if ratios[i] > MaxRatio {
			return StatusInvalidRatio
		}
		total += ratios[i]
	}
	if total == 0 {
		return StatusInvalidRatio
	}
	return StatusSuccess
}

// validateModeRules applies the Split and Threshold constraints for mode.
func validateModeRules(mode Mode, cfg Config) Status {
	switch mode {
	case ModeSplit:
		return validateRatios(cfg.Ratios, cfg.RecipientCount)
	case ModeThreshold:
		if cfg.Threshold == 0 {
			return StatusInvalidThreshold
		}
	}
	return StatusSuccess
}

// applyConfig copies the declared entries of cfg into g and zeroes the rest.
func applyConfig(g *Gate, cfg Config) {
	g.RecipientCount = cfg.RecipientCount
	g.AllowedSenderCount = cfg.AllowedSenderCount
	g.Threshold = cfg.Threshold
	for i := 0; i < MaxRecipients; i++ {
		if i < int(cfg.RecipientCount) {
			g.Recipients[i] = cfg.Recipients[i]
			g.Ratios[i] = cfg.Ratios[i]
		} else {
			g.Recipients[i] = crypto.ZeroIdentity
			g.Ratios[i] = 0
		}
		if i < int(cfg.AllowedSenderCount) {
			g.AllowedSenders[i] = cfg.AllowedSenders[i]
		} else {
			g.AllowedSenders[i] = crypto.ZeroIdentity
		}
	}
}
