package wire

import (
	"Relay/internal/api"
	"Relay/internal/api/config"
	"Relay/internal/api/handler"
	"Relay/internal/job"
	"Relay/internal/pkg/cron"
	"Relay/internal/pkg/kafka"
	"Relay/internal/pkg/redis"
	"Relay/internal/realtime"
	"Relay/internal/repository"
	"Relay/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
	Fanout       *realtime.Fanout
	Producer     *kafka.DeliveryProducer
}

func BuildApplication(db *gorm.DB, cfg *config.Config) (*ApplicationContainer, error) {
	rdb := redis.GetRdbClient()

	messageRepo := repository.NewMessageRepo(db)
	convRepo := repository.NewConversationRepo(db)
	syncRepo := repository.NewSyncStateRepo(db)
	deviceRepo := repository.NewDeviceStateRepo(db)
	reactionRepo := repository.NewReactionRepo(db)
	retryRepo := repository.NewRetryRepo(db)

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, rdb)
	presence := realtime.NewPresence(rdb)
	fanout := realtime.NewFanout(registry, rdb)

	producer, err := kafka.NewDeliveryProducer(cfg)
	if err != nil {
		return nil, err
	}

	verifier := service.NewMediaVerifier()
	messageService := service.NewMessageService(messageRepo, convRepo, reactionRepo, deviceRepo, verifier, producer, hub)
	receiptService := service.NewReceiptService(convRepo, syncRepo, deviceRepo, retryRepo, hub)
	syncService := service.NewSyncService(messageRepo, convRepo, syncRepo)

	wsRouter := realtime.NewRouter(messageService, receiptService, syncService, convRepo, hub, registry)

	handlers := &api.HandlersGroup{
		MessageHandler:  handler.NewMessageHandler(messageService, receiptService, syncService),
		PresenceHandler: handler.NewPresenceHandler(presence),
		WSHandler:       handler.NewWsHandler(registry, wsRouter, hub, presence, convRepo),
	}

	router := api.SetupRouter(handlers)

	deliveryHandler := kafka.NewDeliveryHandler(messageRepo, convRepo, syncRepo, retryRepo, presence, hub)
	kafkaMgr, err := kafka.NewConsumerManager(cfg, deliveryHandler)
	if err != nil {
		return nil, err
	}

	retryJob := job.NewRetryRedeliveryJob(retryRepo, messageRepo, presence, hub)
	cronMgr := cron.NewCronManager(retryJob)

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		Fanout:       fanout,
		Producer:     producer,
	}, nil
}
