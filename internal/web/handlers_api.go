package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"zigbee-binary-sensor/internal/coordinator"
	"zigbee-binary-sensor/internal/entity"
	"zigbee-binary-sensor/internal/match"
	"zigbee-binary-sensor/internal/store"
)

// deviceView is a device together with the entities bound to it.
type deviceView struct {
	*store.Device
	// Known reports whether a device file defines this manufacturer/model.
	Known    bool                 `json:"known"`
	Entities []coordinator.Entity `json:"entities"`
}

func (s *Server) viewDevice(dev *store.Device) deviceView {
	entities := s.coord.Devices().DeviceEntities(dev.IEEEAddress)
	if entities == nil {
		entities = []coordinator.Entity{}
	}
	return deviceView{
		Device:   dev,
		Known:    s.coord.DeviceDB().Lookup(dev.Manufacturer, dev.Model) != nil,
		Entities: entities,
	}
}

// statusFor maps coordinator and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrUnknownDevice), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrUnknownCluster):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// pathIEEE normalizes the {ieee} path value, writing a 400 on failure.
func (s *Server) pathIEEE(w http.ResponseWriter, r *http.Request) (string, bool) {
	ieee, err := coordinator.NormalizeIEEE(r.PathValue("ieee"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid ieee address")
		return "", false
	}
	return ieee, true
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.coord.Devices().ListDevices()
	if err != nil {
		s.logger.Error("list devices", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	views := make([]deviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, s.viewDevice(dev))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	ieee, ok := s.pathIEEE(w, r)
	if !ok {
		return
	}
	dev, err := s.coord.Devices().GetDevice(ieee)
	if err != nil {
		s.writeError(w, statusFor(err), "device not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewDevice(dev))
}

func (s *Server) handleAPIDiscoverDevice(w http.ResponseWriter, r *http.Request) {
	var info coordinator.DeviceInfo
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := coordinator.NormalizeIEEE(info.IEEE); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid ieee address")
		return
	}

	dev, err := s.coord.Devices().Discover(info)
	if err != nil {
		s.logger.Error("discover device", "err", err, "ieee", info.IEEE)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusCreated, s.viewDevice(dev))
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	ieee, ok := s.pathIEEE(w, r)
	if !ok {
		return
	}

	var req renameDeviceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, err := s.coord.Devices().Rename(ieee, req.FriendlyName)
	if err != nil {
		if status := statusFor(err); status != http.StatusInternalServerError {
			s.writeError(w, status, "device not found")
			return
		}
		s.logger.Error("rename device", "err", err, "ieee", ieee)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": dev.FriendlyName})
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ieee, ok := s.pathIEEE(w, r)
	if !ok {
		return
	}
	if err := s.coord.Devices().RemoveDevice(ieee); err != nil {
		if status := statusFor(err); status != http.StatusInternalServerError {
			s.writeError(w, status, "device not found")
			return
		}
		s.logger.Error("delete device", "err", err, "ieee", ieee)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIReport accepts one report object or an array of them. The IEEE
// address is taken from the path.
func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	ieee, ok := s.pathIEEE(w, r)
	if !ok {
		return
	}

	var raw json.RawMessage
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var reports []coordinator.Report
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		if err := json.Unmarshal(raw, &reports); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		var one coordinator.Report
		if err := json.Unmarshal(raw, &one); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		reports = append(reports, one)
	}
	if len(reports) > 50 {
		s.writeError(w, http.StatusBadRequest, "reports limited to 50")
		return
	}

	// The whole batch is checked before any report is applied.
	for i := range reports {
		reports[i].IEEE = ieee
		if err := s.coord.Devices().ValidateReport(reports[i]); err != nil {
			s.writeReportError(w, err, i, 0)
			return
		}
	}
	for i, rep := range reports {
		if err := s.coord.Devices().HandleAttributeReport(rep); err != nil {
			s.writeReportError(w, err, i, i)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "accepted": len(reports)})
}

// writeReportError reports the failing batch index and how many reports
// were applied before it.
func (s *Server) writeReportError(w http.ResponseWriter, err error, index, accepted int) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		// Anything else is a value that failed to decode.
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error(), "index": index, "accepted": accepted})
}

func (s *Server) handleAPIListEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.coord.Devices().Entities()
	class := r.URL.Query().Get("device_class")
	if class == "" {
		s.writeJSON(w, http.StatusOK, entities)
		return
	}
	filtered := make([]coordinator.Entity, 0, len(entities))
	for _, e := range entities {
		if e.DeviceClass == entity.DeviceClass(class) {
			filtered = append(filtered, e)
		}
	}
	s.writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) handleAPIGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.coord.Devices().Entity(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleAPIListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.coord.Rules().Rules()
	out := make([]match.RuleInfo, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Info())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Clusters().All())
}
