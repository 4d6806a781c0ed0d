package internal

import (
	"github.com/sergioamr/img-api/config"
	"github.com/sergioamr/img-api/internal/diskcache"
	"github.com/sergioamr/img-api/internal/lists"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/service"
	"github.com/sergioamr/img-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Media    *media.Store
	Lists    *lists.Service
	Cache    *diskcache.Cache
	JobQueue *service.JobQueue
	Tokens   *security.TokenIssuer
}
