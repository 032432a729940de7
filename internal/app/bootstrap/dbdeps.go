// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app. Runtime is
// allocated by ConnectDB and filled in by Startup so BuildHandler and
// Shutdown see the same services.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Runtime       *Runtime
}
