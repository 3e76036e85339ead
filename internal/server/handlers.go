package server

import (
	"encoding/json"
	"net/http"

	"github.com/pgrootkop-cmyk/honairco/internal/device"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type deviceView struct {
	MacAddress        string         `json:"macAddress"`
	Nickname          string         `json:"nickname,omitempty"`
	ModelName         string         `json:"modelName,omitempty"`
	Available         bool           `json:"available"`
	UnavailableReason string         `json:"unavailableReason,omitempty"`
	Capabilities      map[string]any `json:"capabilities"`
}

// DevicesHandler serves a JSON snapshot of every registered device.
func DevicesHandler(devices []*device.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		views := make([]deviceView, 0, len(devices))
		for _, d := range devices {
			app := d.Appliance()
			available, reason := d.Available()
			views = append(views, deviceView{
				MacAddress:        app.MacAddress,
				Nickname:          app.Nickname,
				ModelName:         app.ModelName,
				Available:         available,
				UnavailableReason: reason,
				Capabilities:      d.Capabilities(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(views); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
