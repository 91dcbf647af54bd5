package main

import (
	"os"
)

// @title Alist Photo Relay API
// @version 1.0
// @description 监控相册页面，把新出现的图片下载并转存到Alist
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://github.com/easayliu/alist-photo-relay/blob/main/LICENSE

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
