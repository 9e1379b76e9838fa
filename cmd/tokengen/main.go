// tokengen 为操作员签发库存接口的Bearer Token
//
//	go run ./cmd/tokengen --operator order-service --role service
//	go run ./cmd/tokengen --config config/config.prod.yaml --operator picker-07 --expire 8h
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/pkg/jwt"
)

func main() {
	var (
		configPath string
		operator   string
		role       string
		expire     time.Duration
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时按默认路径查找）")
	pflag.StringVarP(&operator, "operator", "o", "", "操作员标识（写入库存流水）")
	pflag.StringVarP(&role, "role", "r", "warehouse", "角色")
	pflag.DurationVarP(&expire, "expire", "e", 0, "有效期，0表示使用jwt.access_token_expire")
	pflag.Parse()

	if operator == "" {
		fmt.Fprintln(os.Stderr, "必须指定 --operator")
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if expire <= 0 {
		expire = cfg.JWT.AccessTokenExpire
	}

	token, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, expire).GenerateToken(operator, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "签发Token失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
