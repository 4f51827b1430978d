package config

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	API         API           `yaml:"api"`
	Capture     Capture       `yaml:"capture"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

// API describes the lecture-archive backend. Hostname, port and secure are
// reconfigurable before first use; the client identity is fixed per app.
type API struct {
	Hostname     string `yaml:"hostname"`
	Port         string `yaml:"port"`
	Secure       bool   `yaml:"secure"`
	Version      string `yaml:"version"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

// Capture holds the ffmpeg input selection for the screen and audio grabs.
type Capture struct {
	VideoFormat string `yaml:"video_format"`
	VideoSource string `yaml:"video_source"`
	AudioFormat string `yaml:"audio_format"`
	AudioSource string `yaml:"audio_source"`
	OutputDir   string `yaml:"output_dir"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	setDefaults()

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		API: API{
			Hostname:     viper.GetString("api.hostname"),
			Port:         viper.GetString("api.port"),
			Secure:       viper.GetBool("api.secure"),
			Version:      viper.GetString("api.version"),
			ClientID:     viper.GetString("api.client_id"),
			ClientSecret: viper.GetString("api.client_secret"),
			Scope:        viper.GetString("api.scope"),
			Username:     viper.GetString("api.username"),
			Password:     viper.GetString("api.password"),
		},
		Capture: Capture{
			VideoFormat: viper.GetString("capture.video_format"),
			VideoSource: viper.GetString("capture.video_source"),
			AudioFormat: viper.GetString("capture.audio_format"),
			AudioSource: viper.GetString("capture.audio_source"),
			OutputDir:   viper.GetString("capture.output_dir"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}

// setDefaults mirrors the remote/local presets of the archive backend: the
// hosted instance listens on 443 with TLS, a local one on 5000 without.
func setDefaults() {
	viper.SetDefault("api.hostname", "covod.bre4k3r.de")
	viper.SetDefault("api.port", "443")
	viper.SetDefault("api.secure", true)
	viper.SetDefault("api.version", "v1")
	viper.SetDefault("api.scope", "upload view")
	viper.SetDefault("capture.video_format", "x11grab")
	viper.SetDefault("capture.video_source", ":0.0")
	viper.SetDefault("capture.audio_format", "pulse")
	viper.SetDefault("capture.audio_source", "default")
	viper.SetDefault("capture.output_dir", "recordings")
	viper.SetDefault("server.workers", 2)
}
