package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tsver/tsver/internal/config"
	"github.com/tsver/tsver/internal/diag"
	"github.com/tsver/tsver/internal/logging"
	"github.com/tsver/tsver/internal/registry"
	"github.com/tsver/tsver/internal/store"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	explicit    bool
	checkOnly   bool
	showVersion bool

	installTag  string
	resolveTag  string
	validateTag string
	update      bool
	prune       bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath, opts.explicit)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["store_path"] = cfg.Store.Path
		fields["registry"] = cfg.Registry.URL
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if !opts.hasOperation() {
		fmt.Fprintln(stdErr, "未指定操作，请使用 -install/-resolve/-validate/-update/-prune 之一")
		return 2
	}

	// CLI 启动遵循 “配置 → 日志 → registry 客户端 → Store 门面” 顺序，
	// 所有操作共享同一份诊断出口与缓存根。
	sink := diag.NewLogrusSink(logger)
	fetcher := registry.NewClient(cfg.Registry)
	installer := store.NewNpmInstaller(cfg.Store.NpmExecutable)
	service := store.NewService(cfg.Store, fetcher, installer, sink)

	// prune 不依赖 manifest，先于 Open 处理。
	if opts.prune {
		if err := service.Prune(); err != nil {
			fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
			return 1
		}
		return 0
	}

	if err := service.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return 1
		}
		fmt.Fprintf(stdErr, "打开存储失败: %v\n", err)
		return 1
	}

	switch {
	case opts.resolveTag != "":
		version, ok := service.ResolveTag(opts.resolveTag)
		if !ok {
			return 1
		}
		logger.WithFields(logging.StoreFields(opts.resolveTag, version, cfg.Store.Path)).Info("tag 解析完成")
		fmt.Fprintln(stdOut, version)
		return 0

	case opts.validateTag != "":
		if !service.ValidateTag(opts.validateTag) {
			fmt.Fprintln(stdOut, "invalid")
			return 1
		}
		fmt.Fprintln(stdOut, "valid")
		return 0

	case opts.installTag != "":
		entry, ok := service.Install(ctx, opts.installTag)
		if !ok {
			return 1
		}
		fields := logging.BaseFields("install", opts.configPath)
		fields["tag"] = opts.installTag
		fields["entry"] = entry
		logger.WithFields(fields).Info("安装完成")
		fmt.Fprintln(stdOut, entry)
		return 0

	default:
		if !service.Update(ctx) {
			return 1
		}
		return 0
	}
}

// hasOperation 判断本次调用是否指定了一个具体操作。
func (o cliOptions) hasOperation() bool {
	return o.installTag != "" || o.resolveTag != "" || o.validateTag != "" || o.update || o.prune
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tsver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag  string
		checkOnly   bool
		showVer     bool
		installTag  string
		resolveTag  string
		validateTag string
		update      bool
		prune       bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./tsver.toml，可被 TSVER_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&installTag, "install", "", "解析并安装指定 tag/版本，输出入口文件路径")
	fs.StringVar(&resolveTag, "resolve", "", "将 tag 解析为具体版本")
	fs.StringVar(&validateTag, "validate", "", "校验 tag 是否可解析")
	fs.BoolVar(&update, "update", false, "从注册表刷新 manifest")
	fs.BoolVar(&prune, "prune", false, "删除整个缓存根目录")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TSVER_CONFIG")
	explicit := path != ""
	if configFlag != "" {
		path = configFlag
		explicit = true
	}
	if path == "" {
		path = "tsver.toml"
	}

	return cliOptions{
		configPath:  path,
		explicit:    explicit,
		checkOnly:   checkOnly,
		showVersion: showVer,
		installTag:  installTag,
		resolveTag:  resolveTag,
		validateTag: validateTag,
		update:      update,
		prune:       prune,
	}, nil
}
