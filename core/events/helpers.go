package events

import "strconv"

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatEpoch(v uint16) string {
	return strconv.FormatUint(uint64(v), 10)
}
