package model

import "strings"

// Mineral is a traded mineral symbol. Sn and Zn are the heavy minerals a
// concentrate is built around; Ag travels as a trace mineral.
type Mineral string

const (
	MineralSn Mineral = "Sn"
	MineralZn Mineral = "Zn"
	MineralAg Mineral = "Ag"
)

// ParseMineral normalizes a symbol ("  zn " → Zn). ok is false for unknown symbols.
func ParseMineral(s string) (Mineral, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sn":
		return MineralSn, true
	case "zn":
		return MineralZn, true
	case "ag":
		return MineralAg, true
	}
	return "", false
}

// EsPesado reports whether m can be the principal mineral of a mixed batch.
func (m Mineral) EsPesado() bool { return m == MineralSn || m == MineralZn }
