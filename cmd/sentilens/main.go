// sentilens はソーシャルリスニングの感情分析APIサーバーとワーカーを起動する。
//
// 使い方:
//
//	sentilens [serve|worker|migrate|healthcheck|promote <username>]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/sentilens/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
