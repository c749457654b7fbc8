package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags overlays command-line flags:
//
//	-a  HTTP address          -g  gRPC address
//	-d  PostgreSQL DSN        -s  JWT secret
//	-t  token validity (min)  -o  CORS frontend origin
//	-r  Redis URL             -l  log level
//	-u/-p  S3 user/password   -b  S3 bucket
//	-n  S3 region             -e  S3 endpoint
//	-m  max upload size (bytes)
//
// Only these flags are looked at; anything else on the command line is
// left for other parsers.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-g", "-d", "-s", "-t", "-o", "-r", "-l", "-u", "-p", "-b", "-n", "-e", "-m",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP/websocket listen address")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC ops listen address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.StringVar(&config.FrontendOrigin, "o", config.FrontendOrigin, "allowed CORS origin")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL for the presence mirror")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "n", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size in bytes")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*tokenMinutes) * time.Minute
}
