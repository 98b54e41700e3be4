package vecport

// Close waits for background loads started with StartLoad, then releases the
// cache's index references and stops the guard's sweeper. Cancel outstanding
// load contexts first if a prompt shutdown matters.
//
// Searches against a closed Service miss the cache and report the collection
// as not loaded.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}

	s.wg.Wait()
	s.cache.Close()
	s.guard.Close()

	return nil
}
