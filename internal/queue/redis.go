package queue

import (
	"github.com/hibiken/asynq"

	"posts-rag-service/internal/config"
)

// RedisConnOpt converts the service's Redis settings into asynq connection options
func RedisConnOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opt, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
