// Package setup opens the process-wide infrastructure connections.
package setup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB opens the marketplace database. The default driver is sqlite with a
// local file; set DB_DRIVER=mysql to run against MySQL instead.
func InitDB() (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver := os.Getenv("DB_DRIVER"); driver {
	case "", "sqlite":
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "clawfactory.db"
		}
		db, err = gorm.Open(sqlite.Open(path), cfg)
		if err != nil {
			return nil, fmt.Errorf("setup: open sqlite database at %s: %w", path, err)
		}
		logrus.WithField("path", path).Info("SQLite connected")
	case "mysql":
		dsn, dsnErr := mysqlDSN()
		if dsnErr != nil {
			return nil, dsnErr
		}
		db, err = gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("setup: connect to MySQL: %w", err)
		}
		logrus.Info("MySQL connected")
	default:
		return nil, fmt.Errorf("setup: unknown DB_DRIVER %q", driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("setup: get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func mysqlDSN() (string, error) {
	user := os.Getenv("MYSQL_USER")
	if user == "" {
		return "", fmt.Errorf("setup: MYSQL_USER environment variable not set")
	}
	password := os.Getenv("MYSQL_PASSWORD")
	if password == "" {
		return "", fmt.Errorf("setup: MYSQL_PASSWORD environment variable not set")
	}
	host := os.Getenv("MYSQL_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("MYSQL_PORT")
	if port == "" {
		port = "3306"
	}
	name := os.Getenv("MYSQL_DB")
	if name == "" {
		name = "clawfactory_db"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, name), nil
}

// InitRedis opens the Redis connection used by the login limiter, the IP rate
// limiter and the featured cache.
func InitRedis() (*redis.Client, error) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         host + ":" + port,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("setup: connect to Redis at %s:%s: %w", host, port, err)
	}
	logrus.Info("Redis connected")
	return client, nil
}
