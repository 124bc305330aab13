package store

// Unavailable is a Store for environments without durable storage.
// Every call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Available() bool                  { return false }
func (Unavailable) Get(string) (string, bool, error) { return "", false, ErrUnavailable }
func (Unavailable) Set(string, string) error         { return ErrUnavailable }
func (Unavailable) Delete(string) error              { return ErrUnavailable }
func (Unavailable) Keys() ([]string, error)          { return nil, ErrUnavailable }
