package session

// Client-ID source priorities. Enrichment never overwrites a value that was
// set from a higher-priority source (the "priority floor"): an explicit
// transport client ID beats a room derived from the session ID, which beats
// a room reported by the device.
const (
	prioUnset = iota
	prioDevice
	prioDerived
	prioExplicit
)

// Enrich populates c from the transport facts in req.
//
// Room extraction precedence: req.ClientID > session-ID-derived room (see
// [RoomFromSessionID]) > req.DeviceContext["room_name"]. Language, room name,
// and device inventory are only set when the request actually carries them;
// metadata is merged key-by-key.
func Enrich(c *Context, req RequestContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.ClientID != "" && c.clientPrio <= prioExplicit {
		c.clientID = req.ClientID
		c.clientPrio = prioExplicit
	}
	if c.clientPrio < prioDerived {
		if room, ok := RoomFromSessionID(c.sessionID); ok {
			c.clientID = room
			c.clientPrio = prioDerived
		}
	}
	if c.clientPrio < prioDevice {
		if room, ok := req.DeviceContext["room_name"].(string); ok && room != "" {
			c.clientID = room
			c.clientPrio = prioDevice
		}
	}

	if req.RoomName != "" {
		c.roomName = req.RoomName
	} else if c.roomName == "" {
		if room, ok := req.DeviceContext["room_name"].(string); ok {
			c.roomName = room
		}
	}

	if req.Language != "" {
		c.language = req.Language
	}

	if devs, ok := req.DeviceContext["available_devices"].([]Device); ok {
		c.devices = append(c.devices[:0], devs...)
	}

	for k, v := range req.Metadata {
		c.clientMetadata[k] = v
	}

	c.touchLocked()
}
