package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GAVELWORKS_TEST_MODE") == "" {
			_ = os.Setenv("GAVELWORKS_TEST_MODE", "1")
		}
	})
}
