package sqlinline

const QCreateHistorySchema = `--sql 3c1f7a9e-52b4-4d0e-8a6f-91e2d47b0c38
create table if not exists history_items (
    id         text primary key,
    kind       text not null,
    data       text not null,
    mode       text not null default '',
    prompt     text not null default '',
    created_at timestamptz not null
);
create index if not exists history_items_created_at_idx on history_items (created_at desc);
create table if not exists prompt_history (
    prompt     text primary key,
    used_at    timestamptz not null
);
create index if not exists prompt_history_used_at_idx on prompt_history (used_at desc);
`

const QUpsertHistoryItem = `--sql 9d2e4b71-0c6a-4f8e-b3d5-7a1c9e0f2b64
insert into history_items (id, kind, data, mode, prompt, created_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::timestamptz)
on conflict (id) do update set
    kind = excluded.kind,
    data = excluded.data,
    mode = excluded.mode,
    prompt = excluded.prompt,
    created_at = excluded.created_at;
`

const QListHistoryItems = `--sql 5f8a2c03-9e7b-4d14-a6c1-3b0e8d2f7a95
select id, kind, data, mode, prompt, created_at
from history_items
order by created_at desc, id desc;
`

const QDeleteHistoryItem = `--sql e4b7c1d9-2a5f-4e83-9c06-8d3f1a7b5e20
delete from history_items
where id = $1::text;
`

const QClearHistoryItems = `--sql 71c0e9a4-6b3d-4f52-8e1a-0d9c4b7f3a16
delete from history_items;
`

const QUpsertPrompt = `--sql a2d6f0b8-3c9e-4a71-b5f4-6e8d1c0a9b37
insert into prompt_history (prompt, used_at)
values ($1::text, $2::timestamptz)
on conflict (prompt) do update set used_at = excluded.used_at;
`

const QListPrompts = `--sql c8e1a5f3-7d2b-4096-a4e7-1f5b9c3d0e82
select prompt
from prompt_history
order by used_at desc;
`

const QTrimPrompts = `--sql 2b9f4d6e-8a1c-4e37-9d05-c6a3e7f1b048
delete from prompt_history
where prompt not in (
    select prompt from prompt_history order by used_at desc limit $1::int
);
`

const QClearPrompts = `--sql 6e3a8c1f-0b5d-4f92-a7e6-9c2d4b8f1a53
delete from prompt_history;
`
