package httpserver

import "github.com/rcomino/gabriel-messenger/pkg/logx"

func logxNop() logx.Logger { return logx.Nop() }
