package notify

import logx "rrtracker/pkg/logx"

func logxNop() logx.Logger { return logx.Nop() }
