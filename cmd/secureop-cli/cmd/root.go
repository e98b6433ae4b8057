package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "secureop-cli",
	Short: "安全操作引擎的签名者工具",
	Long: `生成签名者密钥 (BIP-39/BIP-32 派生) 并对元交易摘要做离线签名。
签名者私钥不经过引擎服务端，全部操作在本地完成。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
