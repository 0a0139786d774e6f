package cli

func cmdPrintConfig(env *cmdEnv) int {
	formatted, err := FormatConfig(env.cfg)
	if err != nil {
		env.io.Errorln("error:", err)

		return 1
	}

	env.io.Println(formatted)

	if env.sources.Global != "" {
		env.io.Println("# global config:", env.sources.Global)
	}

	if env.sources.Project != "" {
		env.io.Println("# project config:", env.sources.Project)
	}

	return 0
}
