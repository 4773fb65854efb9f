// Package drivers registra todos los drivers de store vía blank imports.
package drivers

import (
	_ "github.com/starlingpost/starlingpost/internal/store/memory"
	_ "github.com/starlingpost/starlingpost/internal/store/pg"
	_ "github.com/starlingpost/starlingpost/internal/store/sqlite"
)
