package limiter

// multipleBuckets 令牌桶与滑动窗口同时通过才放行
//
// 两个子状态各按自己的规则更新: 令牌桶放行即扣减, 窗口放行即记录,
// 与总体结果无关。remaining 取最小, reset 取最大。
type multipleBuckets struct{}

func (multipleBuckets) Name() AlgorithmType { return AlgorithmMultipleBuckets }

func (multipleBuckets) split(state *State) (token, window *State) {
	if state == nil {
		return nil, nil
	}
	return state.Token, state.Window
}

func (m multipleBuckets) Evaluate(state *State, cfg AlgorithmConfig, now float64) Result {
	tokenState, windowState := m.split(state)
	tok := tokenBucket{}.Evaluate(tokenState, cfg, now)
	win := slidingWindow{}.Evaluate(windowState, cfg, now)

	res := combine(tok, win)
	res.State = &State{Algorithm: AlgorithmMultipleBuckets, Token: tok.State, Window: win.State, UpdatedAt: now}
	return res
}

func (m multipleBuckets) Project(state *State, cfg AlgorithmConfig, now float64) Result {
	tokenState, windowState := m.split(state)
	return combine(
		tokenBucket{}.Project(tokenState, cfg, now),
		slidingWindow{}.Project(windowState, cfg, now),
	)
}

func combine(tok, win Result) Result {
	res := Result{
		Allowed:      tok.Allowed && win.Allowed,
		Remaining:    min(tok.Remaining, win.Remaining),
		ResetSeconds: max(tok.ResetSeconds, win.ResetSeconds),
		Reason:       ReasonAllowed,
	}
	switch {
	case !tok.Allowed:
		res.Reason = tok.Reason
	case !win.Allowed:
		res.Reason = win.Reason
	}
	return res
}
