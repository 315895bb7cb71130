package agent

type Mode string

const (
	ModeAlert          Mode = "alert"
	ModeHighStress     Mode = "high_stress"
	ModeModerateStress Mode = "moderate_stress"
	ModeNormal         Mode = "normal"
	ModeCalm           Mode = "calm"
)

// PowerProfile is the device power recommendation paired with a mode.
type PowerProfile string

const (
	PowerFull   PowerProfile = "full_power"
	PowerNormal PowerProfile = "normal"
	PowerSave   PowerProfile = "power_save"
)

// Classify maps smoothed stress and the anomaly level to a mode; the first
// matching rule wins.
func Classify(meanStress, anomaly float64) (Mode, PowerProfile) {
	switch {
	case anomaly > 0.7:
		return ModeAlert, PowerFull
	case meanStress > 0.75:
		return ModeHighStress, PowerFull
	case meanStress > 0.5:
		return ModeModerateStress, PowerNormal
	case meanStress < 0.25:
		return ModeCalm, PowerSave
	default:
		return ModeNormal, PowerNormal
	}
}
