package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"secureop-core/pkg/address"
	"secureop-core/pkg/bip32"
	"secureop-core/pkg/bip39"
	"secureop-core/pkg/signing"
)

// signCmd 代表 sign 命令
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "离线签名元交易摘要",
	Long: `对引擎返回的 32 字节规范摘要做 secp256k1 签名，输出 65 字节 [R||S||V] 签名。
私钥来源二选一: --key 直接给 hex 私钥，或 --mnemonic + --path 派生。`,
	Run: func(cmd *cobra.Command, args []string) {
		digestHex, _ := cmd.Flags().GetString("digest")
		keyHex, _ := cmd.Flags().GetString("key")
		mnemonic, _ := cmd.Flags().GetString("mnemonic")
		path, _ := cmd.Flags().GetString("path")

		// 1. 解析摘要
		digestBytes, err := hexutil.Decode(digestHex)
		if err != nil || len(digestBytes) != common.HashLength {
			fmt.Println("摘要必须是 0x 前缀的 32 字节十六进制")
			os.Exit(1)
		}
		digest := common.BytesToHash(digestBytes)

		// 2. 加载私钥
		priv, err := loadPrivateKey(keyHex, mnemonic, path)
		if err != nil {
			fmt.Printf("加载私钥失败: %v\n", err)
			os.Exit(1)
		}

		// 3. 签名
		sig, err := signing.Sign(digest, priv)
		if err != nil {
			fmt.Printf("签名失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("================ 签名结果 ================")
		fmt.Printf("签名者地址: %s\n", ethcrypto.PubkeyToAddress(priv.PublicKey).Hex())
		fmt.Printf("摘要:       %s\n", digest.Hex())
		fmt.Printf("签名:       %s\n", hexutil.Encode(sig))
		fmt.Println("==========================================")
	},
}

func loadPrivateKey(keyHex, mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if keyHex != "" {
		return ethcrypto.HexToECDSA(keyHex)
	}
	if mnemonic == "" {
		return nil, fmt.Errorf("必须提供 --key 或 --mnemonic")
	}

	mnemonicService := bip39.NewMnemonicService()
	if !mnemonicService.ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("助记词无效")
	}
	seed := mnemonicService.MnemonicToSeed(mnemonic, "")
	wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	key, err := wallet.DerivePath(path)
	if err != nil {
		return nil, err
	}
	if addr, err := address.EVMAddressString(key); err == nil {
		fmt.Printf("派生签名者: %s (%s)\n", addr, path)
	}
	return key.ToECDSA()
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringP("digest", "d", "", "待签名的 0x 前缀 32 字节摘要")
	signCmd.Flags().StringP("key", "k", "", "hex 编码的 secp256k1 私钥")
	signCmd.Flags().StringP("mnemonic", "m", "", "BIP-39 助记词")
	signCmd.Flags().StringP("path", "p", defaultDerivationPath, "BIP-32 派生路径")
	_ = signCmd.MarkFlagRequired("digest")
}
