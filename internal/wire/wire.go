package wire

import (
	"Murmur/internal/api"
	"Murmur/internal/api/config"
	"Murmur/internal/api/handler"
	"Murmur/internal/im/hub"
	"Murmur/internal/im/presence"
	"Murmur/internal/job"
	"Murmur/internal/pkg/cron"
	"Murmur/internal/pkg/kafka"
	"Murmur/internal/pkg/mongo"
	"Murmur/internal/pkg/security"
	"Murmur/internal/repository"
	"Murmur/internal/repository/memory"
	"Murmur/internal/service"
	"context"
	"fmt"
	log "log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const relayQueueSize = 4096

// Infra 外部连接，memory 模式下全部为空
type Infra struct {
	DB    *gorm.DB
	Mongo *mongodrv.Database
	Redis *redis.Client
}

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router        *gin.Engine
	IMService     service.IMService
	ClusterRouter *hub.ClusterRouter
	Presence      *presence.RedisCounter // 为空表示单机计数，无需心跳
	KafkaManager  *kafka.ConsumerManager
	PushProducer  *kafka.PushProducer
	CronMgr       *cron.Manager
}

func BuildApplication(ctx context.Context, cfg *config.Config, infra Infra) (*ApplicationContainer, error) {
	app := &ApplicationContainer{}

	convRepo, msgRepo, err := buildStores(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	nodeID := cfg.Server.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	// 有 redis 时在线状态与注销列表跨节点共享
	var (
		counter     presence.Counter
		revocations security.Revocations
		locker      job.Locker
	)
	if infra.Redis != nil {
		app.Presence = presence.NewRedisCounter(infra.Redis, nodeID)
		counter = app.Presence
		revocations = security.NewRedisRevocations(infra.Redis)
		locker = job.RedisLocker{}
	}

	registry := hub.NewRegistry()
	var (
		router   hub.Router = registry
		distLock service.DistLocker
	)
	if cfg.Hub.Cluster {
		if infra.Redis == nil {
			return nil, fmt.Errorf("hub.cluster requires redis")
		}
		app.ClusterRouter = hub.NewClusterRouter(registry, infra.Redis, nodeID, relayQueueSize)
		router = app.ClusterRouter
		// 多个节点共享存储，会话锁必须跨进程
		distLock = job.RedisLocker{}
		log.Info("cluster router enabled", "nodeID", nodeID)
	}

	var pusher service.Pusher
	if cfg.Kafka.Enable {
		app.PushProducer, err = kafka.NewPushProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("create push producer: %w", err)
		}
		pusher = app.PushProducer
	}

	imService := service.NewIMService(convRepo, msgRepo, registry, router, presence.NewDirectory(counter), pusher, distLock)
	app.IMService = imService

	if cfg.Kafka.Enable {
		app.KafkaManager, err = kafka.NewConsumerManager(cfg.Kafka, imService)
		if err != nil {
			return nil, fmt.Errorf("create kafka consumers: %w", err)
		}
	}

	app.CronMgr = cron.NewCronManager(job.NewMessageExpiryJob(imService, locker), cfg.Cron.ExpirySpec)

	gate := security.NewGate(cfg.JWT, revocations)
	handlers := &api.HandlersGroup{
		Gate:        gate,
		AuthHandler: handler.NewAuthHandler(gate),
		IMHandler:   handler.NewIMHandler(imService),
		WsHandler:   handler.NewWsHandler(imService, gate, cfg.Hub),
	}
	app.Router = api.SetupRouter(handlers)

	return app, nil
}

func buildStores(ctx context.Context, cfg *config.Config, infra Infra) (repository.ConversationRepo, service.MessageStore, error) {
	if cfg.Storage.Driver != config.StoragePersistent {
		log.Info("using in-memory stores")
		return memory.NewConversationRepo(), memory.NewMessageRepo(), nil
	}
	if infra.DB == nil || infra.Mongo == nil {
		return nil, nil, fmt.Errorf("persistent storage requires database and mongo")
	}

	if err := repository.AutoMigrate(infra.DB); err != nil {
		return nil, nil, fmt.Errorf("migrate membership tables: %w", err)
	}
	if err := mongo.EnsureMessageIndexes(ctx, infra.Mongo); err != nil {
		return nil, nil, fmt.Errorf("ensure message indexes: %w", err)
	}
	return repository.NewConversationRepo(infra.DB), mongo.NewMessageRepo(infra.Mongo), nil
}

// Close 按依赖顺序释放资源
func (s *ApplicationContainer) Close() {
	s.IMService.Close()
	if s.ClusterRouter != nil {
		s.ClusterRouter.Close()
	}
	if s.PushProducer != nil {
		s.PushProducer.Close()
	}
}
