// Package all links every storage backend into a binary. Import for side
// effects; the DSN kind selects the backend at runtime.
package all

import (
	_ "mezzetl/internal/storage/mssql"
	_ "mezzetl/internal/storage/postgres"
	_ "mezzetl/internal/storage/sqlite"
)
