package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BashCompletion is the bash completion script for stripesctl.
const BashCompletion = `#!/bin/bash
# Bash completion for stripesctl

_stripesctl_completion() {
    local cur prev opts
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="login logout status mod perm inst completion help"

    local mod_cmds="descriptor add remove update enable disable install list perms pull"
    local perm_cmds="assign unassign list assign-all"
    local inst_cmds="list add remove"

    local global_flags="--okapi --tenant --help"

    case "${prev}" in
        mod)
            COMPREPLY=( $(compgen -W "${mod_cmds} ${global_flags}" -- ${cur}) )
            return 0
            ;;
        perm)
            COMPREPLY=( $(compgen -W "${perm_cmds} ${global_flags}" -- ${cur}) )
            return 0
            ;;
        inst)
            COMPREPLY=( $(compgen -W "${inst_cmds} ${global_flags}" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
        *)
            ;;
    esac

    COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
    return 0
}

complete -F _stripesctl_completion stripesctl
`

// ZshCompletion is the zsh completion script for stripesctl.
const ZshCompletion = `#compdef stripesctl

_stripesctl() {
    local -a commands
    commands=(
        'login:Log into the gateway and store credentials'
        'logout:Clear stored credentials'
        'status:Show the logged-in session'
        'mod:Module descriptor and tenant operations'
        'perm:User permission operations'
        'inst:Discovery instance operations'
        'completion:Generate shell completion script'
        'help:Show help information'
    )

    local -a mod_cmds
    mod_cmds=(
        'descriptor:Compute and print the module descriptor'
        'add:Register the module descriptor with the gateway'
        'remove:Remove the module descriptor'
        'update:Replace the module descriptor'
        'enable:Enable modules for a tenant'
        'disable:Disable modules for a tenant'
        'install:Bulk install modules for a tenant'
        'list:List module ids'
        'perms:List module permissions'
        'pull:Pull descriptors from a remote registry'
    )

    local -a perm_cmds
    perm_cmds=(
        'assign:Assign permissions to a user'
        'unassign:Unassign permissions from a user'
        'list:List a user'\''s permissions'
        'assign-all:Assign every tenant module permission to a user'
    )

    local -a inst_cmds
    inst_cmds=(
        'list:List registered instances'
        'add:Register an instance'
        'remove:Unregister all instances'
    )

    _arguments -C \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                mod)
                    _describe 'mod command' mod_cmds
                    ;;
                perm)
                    _describe 'perm command' perm_cmds
                    ;;
                inst)
                    _describe 'inst command' inst_cmds
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_stripesctl "$@"
`

// FishCompletion is the fish completion script for stripesctl.
const FishCompletion = `# Fish completion for stripesctl

complete -c stripesctl -f -n "__fish_use_subcommand" -a "login" -d "Log into the gateway"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "logout" -d "Clear stored credentials"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "status" -d "Show the logged-in session"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "mod" -d "Module operations"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "perm" -d "Permission operations"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "inst" -d "Discovery instance operations"
complete -c stripesctl -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion"

complete -c stripesctl -f -n "__fish_seen_subcommand_from mod" -a "descriptor add remove update enable disable install list perms pull"
complete -c stripesctl -f -n "__fish_seen_subcommand_from perm" -a "assign unassign list assign-all"
complete -c stripesctl -f -n "__fish_seen_subcommand_from inst" -a "list add remove"
complete -c stripesctl -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`

// WriteCompletion writes the named shell's completion script to w.
func WriteCompletion(w io.Writer, shell string) error {
	script, err := completionScript(shell)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, script)
	return err
}

// InstallCompletion writes the completion script to the shell's conventional
// per-user completion directory and returns the installed path.
func InstallCompletion(shell string) (string, error) {
	script, err := completionScript(shell)
	if err != nil {
		return "", err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	var path string
	switch shell {
	case "bash":
		path = filepath.Join(home, ".bash_completion.d", "stripesctl")
	case "zsh":
		path = filepath.Join(home, ".zsh", "completion", "_stripesctl")
	case "fish":
		path = filepath.Join(home, ".config", "fish", "completions", "stripesctl.fish")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create completion directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("write completion script: %w", err)
	}
	return path, nil
}

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return BashCompletion, nil
	case "zsh":
		return ZshCompletion, nil
	case "fish":
		return FishCompletion, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}
