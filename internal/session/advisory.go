package session

import "time"

// advisory is a transient user-facing message that clears itself after the
// machine's advisory TTL. The generation counter ensures a stale expiry
// timer never clears a newer message.
type advisory struct {
	message string
	gen     uint64
}

// PermissionError returns the current device-permission advisory, or "".
func (m *Machine) PermissionError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permission.message
}

// SetPermissionError sets the device-permission advisory. It auto-expires
// after the configured TTL. An empty message clears it immediately.
func (m *Machine) SetPermissionError(msg string) {
	m.setAdvisory(&m.permission, msg)
}

// UploadStatus returns the current upload advisory, or "".
func (m *Machine) UploadStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadStatus.message
}

// SetUploadStatus sets the upload advisory. It auto-expires after the
// configured TTL. An empty message clears it immediately.
func (m *Machine) SetUploadStatus(msg string) {
	m.setAdvisory(&m.uploadStatus, msg)
}

func (m *Machine) setAdvisory(a *advisory, msg string) {
	m.mu.Lock()
	a.message = msg
	a.gen++
	gen := a.gen
	ttl := m.advisoryTTL
	m.mu.Unlock()

	if msg == "" {
		return
	}
	time.AfterFunc(ttl, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if a.gen == gen {
			a.message = ""
		}
	})
}
