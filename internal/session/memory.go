package session

import "fmt"

// MemoryEstimate is a rough per-subfield byte breakdown of a context's
// footprint. It feeds the monitoring surface; the numbers are heuristics, not
// allocator truth.
type MemoryEstimate struct {
	HistoryBytes         int `json:"history_bytes"`
	HandlerContextBytes  int `json:"handler_context_bytes"`
	ActionRegistryBytes  int `json:"action_registry_bytes"`
	MetadataBytes        int `json:"metadata_bytes"`
	DeviceInventoryBytes int `json:"device_inventory_bytes"`
	TotalBytes           int `json:"total_bytes"`
}

// perRecordOverhead approximates Go struct and map-entry overhead per stored
// record.
const perRecordOverhead = 96

// EstimateMemory returns a byte-level breakdown of c's in-memory footprint.
func EstimateMemory(c *Context) MemoryEstimate {
	c.mu.Lock()
	defer c.mu.Unlock()

	var est MemoryEstimate

	for _, h := range c.history {
		est.HistoryBytes += len(h.UserText) + len(h.Response) + len(h.IntentName) + len(h.ClientID) + perRecordOverhead
	}

	for name, hc := range c.handlerContexts {
		est.HandlerContextBytes += len(name) + perRecordOverhead
		for _, msg := range hc.Messages {
			est.HandlerContextBytes += len(msg.Role) + len(msg.Content) + perRecordOverhead
		}
		for k, v := range hc.Values {
			est.HandlerContextBytes += len(k) + estimateValue(v) + perRecordOverhead
		}
	}

	countAction := func(rec ActionRecord) int {
		return len(rec.Domain) + len(rec.Action) + len(rec.TaskID) +
			len(rec.RoomID) + len(rec.SessionID) + len(rec.Error) + perRecordOverhead
	}
	for _, rec := range c.active {
		est.ActionRegistryBytes += countAction(*rec)
	}
	for _, rec := range c.recentActions {
		est.ActionRegistryBytes += countAction(rec)
	}
	for _, rec := range c.failedActions {
		est.ActionRegistryBytes += countAction(rec)
	}

	for k, v := range c.clientMetadata {
		est.MetadataBytes += len(k) + estimateValue(v) + perRecordOverhead
	}

	for _, d := range c.devices {
		est.DeviceInventoryBytes += len(d.ID) + len(d.Name) + len(d.Type) + len(d.Room) + perRecordOverhead
		for k, v := range d.Capabilities {
			est.DeviceInventoryBytes += len(k) + estimateValue(v) + perRecordOverhead
		}
	}

	est.TotalBytes = est.HistoryBytes + est.HandlerContextBytes +
		est.ActionRegistryBytes + est.MetadataBytes + est.DeviceInventoryBytes
	return est
}

// estimateValue sizes an arbitrary metadata value. Strings and byte slices
// are measured directly; everything else is sized via its printed form.
func estimateValue(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []byte:
		return len(t)
	case nil:
		return 0
	default:
		return len(fmt.Sprint(t))
	}
}
