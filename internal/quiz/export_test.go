package quiz

// PutRawPrefs stores raw bytes under a client's key so tests can seed
// corrupt data.
func PutRawPrefs(s *MemoryPrefsStore, clientID string, raw []byte) {
	s.mu.Lock()
	s.data[prefsKey(clientID)] = raw
	s.mu.Unlock()
}
