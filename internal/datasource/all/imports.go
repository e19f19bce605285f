// Package all registers every source kind.
package all

import (
	_ "staretl/internal/datasource/file"
	_ "staretl/internal/datasource/httpds"
	_ "staretl/internal/datasource/mongo"
)
