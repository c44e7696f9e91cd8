package supervisor

import logx "rrtracker/pkg/logx"

func nopLogger() logx.Logger { return logx.Nop() }
