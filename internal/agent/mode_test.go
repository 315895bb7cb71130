package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mean    float64
		anomaly float64
		mode    Mode
		power   PowerProfile
	}{
		{"anomaly overrides", 0.1, 0.8, ModeAlert, PowerFull},
		{"anomaly at threshold", 0.1, 0.7, ModeCalm, PowerSave},
		{"high", 0.8, 0, ModeHighStress, PowerFull},
		{"high boundary", 0.75, 0, ModeModerateStress, PowerNormal},
		{"moderate", 0.6, 0.5, ModeModerateStress, PowerNormal},
		{"moderate boundary", 0.5, 0, ModeNormal, PowerNormal},
		{"normal", 0.3, 0, ModeNormal, PowerNormal},
		{"calm boundary", 0.25, 0, ModeNormal, PowerNormal},
		{"calm", 0.1, 0, ModeCalm, PowerSave},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mode, power := Classify(tc.mean, tc.anomaly)
			assert.Equal(t, tc.mode, mode)
			assert.Equal(t, tc.power, power)
		})
	}
}
