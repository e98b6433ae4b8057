package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"secureop-core/pkg/address"
	"secureop-core/pkg/bip32"
	"secureop-core/pkg/bip39"
	"secureop-core/pkg/safe_random"
)

// 引擎签名者默认使用以太坊派生路径
const defaultDerivationPath = "m/44'/60'/0'/0/0"

// keygenCmd 代表 keygen 命令
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "生成一个新的签名者密钥",
	Long:  `从安全随机熵生成 BIP-39 助记词，派生签名者私钥并打印对应的引擎地址。`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")

		fmt.Println("正在生成签名者密钥...")
		fmt.Println("---------------------------------------------------")

		// 1. 生成熵 + 助记词 (24 words)
		entropy, err := safe_random.GenerateRandomBytes(32)
		if err != nil {
			fmt.Printf("生成熵失败: %v\n", err)
			return
		}
		mnemonicService := bip39.NewMnemonicService()
		mnemonic, err := mnemonicService.MnemonicFromEntropy(entropy)
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			return
		}
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")

		// 2. 生成种子和主密钥
		seed := mnemonicService.MnemonicToSeed(mnemonic, "")
		wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
		if err != nil {
			fmt.Printf("生成主密钥失败: %v\n", err)
			return
		}

		// 3. 派生签名者密钥
		key, err := wallet.DerivePath(path)
		if err != nil {
			fmt.Printf("派生失败: %v\n", err)
			return
		}
		priv, err := key.ToECDSA()
		if err != nil {
			fmt.Printf("转换私钥失败: %v\n", err)
			return
		}
		addr, err := address.EVMAddressString(key)
		if err != nil {
			fmt.Printf("派生地址失败: %v\n", err)
			return
		}

		fmt.Printf("派生路径: %s\n", path)
		fmt.Printf("私钥 (hex): %s\n", hex.EncodeToString(ethcrypto.FromECDSA(priv)))
		fmt.Printf("签名者地址: %s\n", addr)
		fmt.Println("---------------------------------------------------")
		fmt.Println("请妥善保管助记词和私钥！持有它们即可代表该签名者授权操作。")
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringP("path", "p", defaultDerivationPath, "BIP-32 派生路径")
}
